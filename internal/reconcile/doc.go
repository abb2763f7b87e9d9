// Package reconcile maps the untrusted results of group builds onto the trusted run
// state: errors go to the narrowest known scope, built manifests update the build state
// and archives are copied out of the group directory.
package reconcile
