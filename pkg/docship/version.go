package docship

// Version is the library version, set at release.
const Version = "0.1.0"
