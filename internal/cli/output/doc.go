// Package output renders server replies for emberkv-cli.
//
// Three formats are supported: "text" is meant for people and marks each
// reply with its type, "raw" prints bare values for scripts, and "json"
// prints one JSON document per reply.
package output
