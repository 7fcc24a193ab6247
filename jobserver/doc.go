// Package jobserver throttles local parallelism against the globally
// shared token budget of the GNU make jobserver protocol. A Proxy
// recycles permits between local waiters before ever going back to the
// broker, and degrades to a no-op when no broker is configured.
package jobserver
