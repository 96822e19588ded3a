// Package config loads the balco server configuration.
//
// Configuration is resolved in three steps: the optional balco.json file
// (a missing file means defaults), then environment overrides, then
// validation. Durations in the file are strings such as "60s".
//
// Example balco.json:
//
//	{
//	  "port": 1000,
//	  "allowedOrigin": "http://localhost:3000",
//	  "store": {
//	    "kind": "sqlite",
//	    "sqlitePath": "data/rooms.db"
//	  },
//	  "session": {
//	    "readTimeout": "60s",
//	    "heartbeatInterval": "30s",
//	    "sendQueueSize": 256
//	  },
//	  "log": {"level": "info", "format": "json"}
//	}
//
// Environment variables override the file:
//
//	PORT, BALCO_HOST, BALCO_ALLOWED_ORIGIN, BALCO_STORE, BALCO_DATA_FILE,
//	BALCO_STORE_FORMAT, BALCO_SQLITE_PATH, BALCO_S3_BUCKET, BALCO_S3_KEY,
//	BALCO_S3_REGION, BALCO_S3_ENDPOINT, BALCO_LOG_LEVEL, BALCO_LOG_FORMAT
package config
