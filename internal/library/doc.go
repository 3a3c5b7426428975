// Package library holds the library version records and the two registries
// that answer "which documented versions exist for this identity".
//
// PackageRegistry is seeded once from a static manifest; ScmRegistry derives
// its membership from the published directory layout under ReposPath and
// rescans it on every read, because a checkout worker (possibly another OS
// process) is the only writer.
package library
