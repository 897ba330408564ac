// Package config loads domcore configuration files.
//
// The format is chosen by file extension: .json, .yaml/.yml or .toml. Unknown
// keys are rejected. Durations are written as strings such as "10s".
//
// # Configuration File Structure
//
//	root:
//	  id: 1
//	  width: 1280
//	  height: 720
//	server:
//	  addr: ":8080"
//	  allowed_origins: ["http://localhost:5173"]
//	  read_header_timeout: 5s
//	  write_timeout: 10s
//	snapshot:
//	  bucket: my-snapshots
//	  prefix: domcore/
//	  region: eu-west-1
//	log:
//	  level: info
//	  format: text
//	metrics:
//	  namespace: domcore
//
// # Usage
//
//	cfg, err := config.Load("domcore.yaml")
//	if err != nil {
//	    errors.PrintError(os.Stderr, err)
//	    os.Exit(1)
//	}
//	logger := cfg.Log.NewLogger(os.Stderr)
package config
