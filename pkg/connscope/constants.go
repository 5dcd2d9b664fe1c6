package connscope

import (
	"github.com/carlmjohnson/versioninfo"
)

const versionSemantic = "0.1.0"

func Version() string {
	return versionSemantic + "-" + versioninfo.Short()
}

const DefaultStatsdNamespace = "connscope."
