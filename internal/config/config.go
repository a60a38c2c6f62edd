package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const (
	PersistencePostgres = "postgres"
	PersistenceMemory   = "memory"
)

type Application struct {
	Host     string   `koanf:"host"`
	Server   Server   `koanf:"server"`
	Database Database `koanf:"db"`
	Calendar Calendar `koanf:"calendar"`
	ICS      ICS      `koanf:"ics"`
}

type Server struct {
	Port int `koanf:"port"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`

	// MaxConns and MinConns size the connection pool. Zero keeps the pgxpool default.
	MaxConns int32 `koanf:"maxconns"`
	MinConns int32 `koanf:"minconns"`
}

type Calendar struct {
	// IncludeFullDay makes day listings contain full-day events.
	IncludeFullDay bool `koanf:"includefullday"`
	// Persistence is either "postgres" or "memory".
	Persistence string `koanf:"persistence"`
}

// ICS configures the periodic iCalendar file export. An empty Path disables it.
type ICS struct {
	Path     string `koanf:"path"`
	Schedule string `koanf:"schedule"`
}

func defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Server: Server{
			Port: 8181,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "eventkit",
			Pass:     "",
			Name:     "eventkit",
			Schema:   "eventkit",
			MaxConns: 25,
			MinConns: 5,
		},
		Calendar: Calendar{
			IncludeFullDay: true,
			Persistence:    PersistencePostgres,
		},
		ICS: ICS{
			Path:     "",
			Schedule: "*/15 * * * *",
		},
	}
}

// Load reads the configuration in three layers: built-in defaults, the YAML
// file at path (optional) and EVENTKIT_* environment variables, where
// EVENTKIT_DB_HOST sets db.host.
func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "EVENTKIT_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "EVENTKIT_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	switch app.Calendar.Persistence {
	case PersistencePostgres, PersistenceMemory:
	default:
		return Application{}, fmt.Errorf("unknown calendar persistence %q", app.Calendar.Persistence)
	}

	return app, nil
}
