package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address         string
		ShutdownTimeout time.Duration
	}

	SessionConfig struct {
		Duration     time.Duration
		SaveOnSubmit bool
	}

	// Columns holds the header names of the roster workbook.
	Columns struct {
		Date              string
		FullName          string
		StudentID         string
		Attendance        string
		ExpectedHours     string
		ActualHours       string
		AbsenceHours      string
		AuthorizedAbsence string
		LectureName       string
		Section           string
	}

	// Labels holds the cell values written for attendance and authorized absence.
	Labels struct {
		Present       string
		Absent        string
		AuthorizedYes string
		AuthorizedNo  string
	}

	RosterConfig struct {
		Sheet   string // empty means the first sheet
		Columns Columns
		Labels  Labels
	}

	DevicesConfig struct {
		Path string
	}

	OperatorConfig struct {
		Token string
		Email string
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		RollbarToken string

		defaultFromEmail string
		SendgridApiKey   string

		Server   ServerConfig
		Session  SessionConfig
		Roster   RosterConfig
		Devices  DevicesConfig
		Operator OperatorConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// OperatorAddress returns the operator's address for session reports, if any.
func (c *Config) OperatorAddress() (mail.Address, bool) {
	if c.Operator.Email == "" {
		return mail.Address{}, false
	}
	addr, err := mail.ParseAddress(c.Operator.Email)
	if err != nil {
		return mail.Address{}, false
	}
	return *addr, true
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Hudoor")
	conf.SetDefault("build", "dev")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("server.address", ":5000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)

	conf.SetDefault("session.duration", 15*time.Minute)
	conf.SetDefault("session.saveOnSubmit", true)

	conf.SetDefault("roster.sheet", "")
	conf.SetDefault("roster.columns.date", "أيام المحاضرات")
	conf.SetDefault("roster.columns.fullName", "اسم الطالب")
	conf.SetDefault("roster.columns.studentID", "الرقم الجامعي للطالب")
	conf.SetDefault("roster.columns.attendance", "مؤشر الحضور")
	conf.SetDefault("roster.columns.expectedHours", "الساعات المتوقعة")
	conf.SetDefault("roster.columns.actualHours", "الساعات الفعلية")
	conf.SetDefault("roster.columns.absenceHours", "ساعات الغياب")
	conf.SetDefault("roster.columns.authorizedAbsence", "غياب مصرح به")
	conf.SetDefault("roster.columns.lectureName", "رمز الفصل الدراسي")
	conf.SetDefault("roster.columns.section", "الرقم المرجعي للمقرر")
	conf.SetDefault("roster.labels.present", "حاضر")
	conf.SetDefault("roster.labels.absent", "غائب")
	conf.SetDefault("roster.labels.authorizedYes", "نعم")
	conf.SetDefault("roster.labels.authorizedNo", "لا")

	conf.SetDefault("devices.path", filepath.Join("security", "device_fingerprints.json"))

	conf.SetDefault("operator.token", "")
	conf.SetDefault("operator.email", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetDefault("env", env)
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              conf.GetString("env"),
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		RollbarToken:     conf.GetString("rollbarToken"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Address:         conf.GetString("server.address"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
		},
		Session: SessionConfig{
			Duration:     conf.GetDuration("session.duration"),
			SaveOnSubmit: conf.GetBool("session.saveOnSubmit"),
		},
		Roster: RosterConfig{
			Sheet: conf.GetString("roster.sheet"),
			Columns: Columns{
				Date:              conf.GetString("roster.columns.date"),
				FullName:          conf.GetString("roster.columns.fullName"),
				StudentID:         conf.GetString("roster.columns.studentID"),
				Attendance:        conf.GetString("roster.columns.attendance"),
				ExpectedHours:     conf.GetString("roster.columns.expectedHours"),
				ActualHours:       conf.GetString("roster.columns.actualHours"),
				AbsenceHours:      conf.GetString("roster.columns.absenceHours"),
				AuthorizedAbsence: conf.GetString("roster.columns.authorizedAbsence"),
				LectureName:       conf.GetString("roster.columns.lectureName"),
				Section:           conf.GetString("roster.columns.section"),
			},
			Labels: Labels{
				Present:       conf.GetString("roster.labels.present"),
				Absent:        conf.GetString("roster.labels.absent"),
				AuthorizedYes: conf.GetString("roster.labels.authorizedYes"),
				AuthorizedNo:  conf.GetString("roster.labels.authorizedNo"),
			},
		},
		Devices: DevicesConfig{
			Path: conf.GetString("devices.path"),
		},
		Operator: OperatorConfig{
			Token: conf.GetString("operator.token"),
			Email: conf.GetString("operator.email"),
		},
	}
}
