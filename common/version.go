package common

// Version is set at build time with -ldflags "-X .../common.Version=..."
var Version = "dev"

// PackageName prefixes metric names and is the default log service tag.
const PackageName = "content_service"
