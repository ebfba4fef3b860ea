// Package hostfuncs implements the host function surface exposed to guest
// plugins: the capability gate, the per-plugin host context holding
// collaborators, and the handler registry the sandbox adapter dispatches
// into. Every handler speaks the tagged byte protocol from package abi.
package hostfuncs
