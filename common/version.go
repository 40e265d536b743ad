package common

// PackageName identifies this service in logs and metrics.
const PackageName = "mns-backend"

// Version is set at build time via -ldflags.
var Version = "dev"
