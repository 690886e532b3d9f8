package app

// Name is the application name used in the CLI and in version output.
const Name = "voicelink"
