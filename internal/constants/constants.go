// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// ServerName is sent in the Server header of every HTTP response.
const ServerName = "pdsid/" + Version
