// Package validator wraps the external BIDS schema validator.
package validator
