// Package entities defines the core domain types of the plugin host:
// manifests, permission grants, lifecycle states, health reports, and the
// resource limits enforced on guest plugins. These types serve dual purpose
// as domain entities and JSON wire DTOs; their field names are part of the
// guest-visible contract and must remain stable.
package entities
