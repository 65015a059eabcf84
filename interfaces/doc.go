// Package interfaces defines the core types, interfaces and error taxonomy
// shared by the signature service components. It provides the contract
// between the key directory, the signing engine and the HTTP boundary
// without implementation details.
package interfaces
