package types

// Version is the canonical project version.
// The CLI, the persisted record layout and the notification schema share
// this version.
const Version = "0.3.0"
