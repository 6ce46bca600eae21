package build

// Version is set at link time with -ldflags "-X github.com/pomdtr/assetpipe/internal/build.Version=...".
var Version = "dev"
