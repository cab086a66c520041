// Package frontend provides participants that connect a person or a script
// to the swarm: an interactive line-oriented Console and a non-interactive
// Batch runner. Both send user_request messages to the controller and
// render the user_output messages they get back.
package frontend
