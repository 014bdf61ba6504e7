package internal

// Version is reported in the client header and server startup log.
const Version = "0.3.0"
