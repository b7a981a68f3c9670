package main

import (
	"flag"
	"log"

	"github.com/danmuck/surfacectl/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case config.KindEngine:
		return "cmd/surfacectl/config.toml"
	case config.KindSimulator:
		return "cmd/surfacesim/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", config.KindEngine, "config kind: surfacectl|surfacesim")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		var err error
		switch *kind {
		case config.KindEngine:
			_, err = config.Load(path)
		case config.KindSimulator:
			_, err = config.LoadSim(path)
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
