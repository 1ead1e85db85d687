package main

import (
	"go.uber.org/fx"

	"github.com/farmgate-io/farmgate/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
