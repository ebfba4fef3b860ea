// Package ports declares the collaborator interfaces the plugin host
// consumes: key-value storage, blob storage, cluster membership, SQL query
// execution, hook dispatch, and named service execution. Implementations
// live in infrastructure packages or in the embedding application.
package ports
