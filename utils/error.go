package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorReauthRequired marks credential failures that need the tenant to reconnect
// their Google account. Handlers translate this into requiresReauth responses.
var ErrorReauthRequired = errors.New("reauthorization required")
