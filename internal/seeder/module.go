package seeder

import "go.uber.org/fx"

// Module wires the seeder.
var Module = fx.Provide(New)
