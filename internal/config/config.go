package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 CPESTAT_DATA_DIR
const EnvPrefix = "CPESTAT"

// Config 运行配置
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	DBPath        string        `mapstructure:"db_path"`
	ReportDir     string        `mapstructure:"report_dir"`
	DictionaryURL string        `mapstructure:"dictionary_url"`
	FeedBaseURL   string        `mapstructure:"feed_base_url"`
	Years         []string      `mapstructure:"years"`
	Workers       int           `mapstructure:"workers"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Refresh       bool          `mapstructure:"refresh"`
	Top           int           `mapstructure:"top"`
	Format        string        `mapstructure:"format"`
	Verbose       bool          `mapstructure:"verbose"`
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("report_dir", "")
	v.SetDefault("dictionary_url", "https://nvd.nist.gov/feeds/xml/cpe/dictionary/official-cpe-dictionary_v2.3.xml.zip")
	v.SetDefault("feed_base_url", "https://nvd.nist.gov/feeds/json/cve/1.1/")
	v.SetDefault("years", []string{"2022"})
	v.SetDefault("workers", 4)
	v.SetDefault("http_timeout", 5*time.Minute)
	v.SetDefault("max_retries", 3)
	v.SetDefault("refresh", false)
	v.SetDefault("top", 10)
	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
}

// Setup 配置 viper：.env 文件、环境变量、可选的配置文件
func Setup(v *viper.Viper, configFile string) error {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "加载 .env 失败")
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "读取配置文件 %s 失败", configFile)
		}
		return nil
	}

	v.SetConfigName("cpestat")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "读取配置文件失败")
		}
	}
	return nil
}

// Load 从 viper 解析配置并校验
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "解析配置失败")
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "cpe.db")
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = cfg.DataDir
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查配置是否可用
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir 不能为空")
	}
	if c.DictionaryURL == "" || c.FeedBaseURL == "" {
		return errors.New("dictionary_url 和 feed_base_url 不能为空")
	}
	if c.Workers < 1 {
		return errors.Errorf("workers 必须大于 0，当前为 %d", c.Workers)
	}
	if c.MaxRetries < 0 {
		return errors.Errorf("max_retries 不能为负数，当前为 %d", c.MaxRetries)
	}
	if _, err := c.FeedYears(); err != nil {
		return err
	}
	return nil
}

// FeedYears 展开 years 配置，支持 "2019-2022" 形式的区间，结果去重升序
func (c Config) FeedYears() ([]int, error) {
	seen := make(map[int]struct{})
	for _, item := range c.Years {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			from, to, err := parseYearRange(part)
			if err != nil {
				return nil, err
			}
			for year := from; year <= to; year++ {
				seen[year] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil, errors.New("years 至少需要一个年份")
	}

	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

func parseYearRange(s string) (int, int, error) {
	fromStr, toStr, isRange := strings.Cut(s, "-")
	from, err := parseYear(fromStr)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return from, from, nil
	}
	to, err := parseYear(toStr)
	if err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, errors.Errorf("年份区间 %q 起止颠倒", s)
	}
	return from, to, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || year < 2002 || year > 2100 {
		return 0, errors.Errorf("无效的年份 %q", s)
	}
	return year, nil
}

// DictionaryArchive 字典压缩包的本地路径
func (c Config) DictionaryArchive() string {
	return filepath.Join(c.DataDir, path.Base(c.DictionaryURL))
}

// DictionaryEntry 字典压缩包内的 XML 文件名
func (c Config) DictionaryEntry() string {
	return strings.TrimSuffix(path.Base(c.DictionaryURL), ".zip")
}

// FeedFile 某一年 CVE 数据源的文件名
func (c Config) FeedFile(year int) string {
	return fmt.Sprintf("nvdcve-1.1-%d.json.zip", year)
}

// FeedURL 某一年 CVE 数据源的下载地址
func (c Config) FeedURL(year int) string {
	return strings.TrimSuffix(c.FeedBaseURL, "/") + "/" + c.FeedFile(year)
}

// FeedArchive 某一年 CVE 数据源的本地路径
func (c Config) FeedArchive(year int) string {
	return filepath.Join(c.DataDir, c.FeedFile(year))
}

// FeedEntry 某一年 CVE 数据源压缩包内的 JSON 文件名
func (c Config) FeedEntry(year int) string {
	return strings.TrimSuffix(c.FeedFile(year), ".zip")
}
