package version

// Version is set at build time with
// -ldflags "-X github.com/ollama/ollama-usage/version.Version=v0.1.0".
var Version string = "0.0.0"
