// Package exec is the portable process.Backend implementation.
//
//   - Children are plain OS processes (os/exec) in their own process
//     group, so a whole attempt can be signalled at once.
//   - The semantic Backend contract is preserved so the prober never
//     touches os/exec directly and can run against the fake in tests.
package exec
