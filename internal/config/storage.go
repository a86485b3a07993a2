package config

type Storage struct {
	// Backend selector: "sqlite" or "mysql". Decides which block below is
	// used when both are populated (defaults always materialize sqlite).
	Type string `mapstructure:"type"`

	SQLite *SQLiteStorage `mapstructure:"sqlite,omitempty"`
	MySQL  *MySQLStorage  `mapstructure:"mysql,omitempty"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path,omitempty"`
}

type MySQLStorage struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}
