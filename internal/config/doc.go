// Package config loads the olta server configuration.
//
// Settings come from three layers, later ones winning: built-in defaults,
// a YAML file (olta.yaml by default), and environment variables. The CLI
// applies its flags on top.
//
// # Configuration File Structure
//
//	server:
//	  address: ":8080"
//	  token: "change-me"
//	  read_timeout: 60s
//	  write_timeout: 10s
//	  heartbeat: 30s
//	  max_message_size: 65536
//	  allowed_origins: ["https://app.example.com"]
//	store:
//	  driver: sqlite        # memory | sqlite | postgres | s3
//	  dsn: olta.db
//	  table: processes
//	registry:
//	  max_hot_sessions: 10000
//	  idle_ttl: 30m
//	persist:
//	  save_timeout: 10s
//	  shutdown_timeout: 30s
//	log:
//	  level: info           # debug | info | warn | error
//	  format: text          # text | json
//	metrics:
//	  enabled: true
//	  path: /metrics
//
// # Environment
//
//	OLTA_TOKEN    server.token
//	OLTA_ADDR     server.address
//	OLTA_STORE    store.driver
//	DATABASE_URL  store.dsn; selects postgres unless a driver is set
package config
