// Package schema provides the principal schematics for all other packages. It
// defines the shared domain enumerations (redundancy levels, filesystem
// types), the staged [Outcome] results of the provisioning pipelines and
// provides implementations for handling (Unix-based) operating system
// syscalls. The package serves as a foundational layer for all provisioning
// interactions throughout the codebase.
package schema
