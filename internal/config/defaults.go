package config

var defaults = map[string]any{
	"secret":    "",
	"log_level": "info",
	"listen":    ":8080",

	"sync.max_concurrent":          8,
	"sync.min_interval_seconds":    30,
	"sync.connect_timeout_seconds": 5,

	"enroll.min_quality":     60,
	"enroll.timeout_seconds": 45,

	"attendance.grace_minutes":     5,
	"attendance.leave_policy_file": "",
	"attendance.reconcile_time":    "02:30",

	"bridge.url":       "",
	"bridge.token_ttl": 30,

	"email.host":     "host.docker.internal",
	"email.port":     25,
	"email.username": "",
	"email.password": "",
	"email.from":     "noreply@example.com",

	"storage.type":        "sqlite",
	"storage.sqlite.path": "./data/attendance.db",

	// MySQL keys default empty so they stay reachable through AutomaticEnv;
	// storage.type selects the backend.
	"storage.mysql.host":     "",
	"storage.mysql.port":     3306,
	"storage.mysql.username": "",
	"storage.mysql.password": "",
	"storage.mysql.database": "",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
