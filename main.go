package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/connscope/connscope/cmd"
	"github.com/connscope/connscope/pkg/connscope"
)

func main() {
	conf, err := cmd.NewConfiguration(nil, nil)
	if err != nil {
		log.Fatalf("Could not create configuration: %v", err)
	} else if conf != nil {
		adapter := &connscope.Log2LogrusWriter{
			Entry: conf.Log.WithField("stdlog", "1"),
		}
		// Set the standard logger to use our logger's writter as output.
		log.SetOutput(adapter)
		if err := connscope.StartWithConfig(conf); err != nil {
			conf.Log.Fatalf("connscope exited with error: %v", err)
		}
	} else {
		// --help or --version was passed and handled by NewConfiguration, so do nothing
	}
}
