package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string `yaml:"env" env-default:"local"`
	Widget struct {
		ApiURL     string `yaml:"api_url" env-default:"http://127.0.0.1:9200"`
		Username   string `yaml:"username" env-default:""`
		Position   string `yaml:"position" env-default:"bottom-right"`
		SiteOrigin string `yaml:"site_origin" env-default:""`
	} `yaml:"widget"`
	User struct {
		ID         string `yaml:"id" env-default:""`
		ExternalID string `yaml:"external_id" env-default:""`
		Email      string `yaml:"email" env-default:""`
		Name       string `yaml:"name" env-default:""`
		FullName   string `yaml:"full_name" env-default:""`
	} `yaml:"user"`
	Storage struct {
		Path string `yaml:"path" env-default:".support-widget.json"`
	} `yaml:"storage"`
	Stub struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port    string `yaml:"port" env-default:"9200"`
	} `yaml:"stub"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
