package modules

import (
	"github.com/iota-uz/workflow-console/modules/workflow"
	"github.com/iota-uz/workflow-console/pkg/application"
	"github.com/iota-uz/workflow-console/pkg/configuration"
)

func BuiltInModules(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		workflow.NewModule(&workflow.ModuleOptions{
			Workflow:      conf.Workflow,
			RedisURL:      conf.RedisURL,
			SessionHeader: conf.SessionHeader,
		}),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
