// Package registry manages attendant profiles: onboarding, lookup, and
// presence status. Status changes never touch the attendant's open
// conversations; routing eligibility is recomputed from status and capacity
// at assignment time.
package registry
