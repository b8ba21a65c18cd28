package config

// DB holds the database configuration settings.
type DB struct {
	GormEngine string `validate:"omitempty,oneof=mysql postgres sqlite"`
	Extras     string
	Host       string `validate:"required_unless=GormEngine sqlite"`
	Port       int
	User       string
	Password   string
	Name       string
	// Path of the sqlite database file, :memory: for a throw away database.
	Path string
}
