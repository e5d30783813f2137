package config_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/deltajoin/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	It("should default to a single worker without metrics", func() {
		c := config.Default()
		Expect(c.Validate()).To(Succeed())
		Expect(c.Workers).To(Equal(1))
		Expect(c.MetricsEnabled()).To(BeFalse())
	})

	It("should parse YAML on top of the defaults", func() {
		c, err := config.Parse([]byte(`
workers: 4
partitions: 64
metricsBindAddress: ":8080"
logging:
  level: 4
  development: true
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(&config.Config{
			Workers:            4,
			Partitions:         64,
			MetricsBindAddress: ":8080",
			Logging:            config.Logging{Level: 4, Development: true},
		}))
		Expect(c.MetricsEnabled()).To(BeTrue())

		opts := c.DataflowOptions()
		Expect(opts.Workers).To(Equal(4))
		Expect(opts.Partitions).To(Equal(64))
	})

	It("should keep defaults for missing fields", func() {
		c, err := config.Parse([]byte("partitions: 8\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Workers).To(Equal(1))
		Expect(c.Partitions).To(Equal(8))
	})

	It("should reject unknown fields", func() {
		_, err := config.Parse([]byte("threads: 4\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should reject invalid configurations", func() {
		_, err := config.Parse([]byte("workers: 4\npartitions: 2\n"))
		Expect(err).To(MatchError(ContainSubstring("partitions")))

		_, err = config.Parse([]byte("workers: 0\n"))
		Expect(err).To(MatchError(ContainSubstring("workers")))

		_, err = config.Parse([]byte("metricsBindAddress: localhost\n"))
		Expect(err).To(MatchError(ContainSubstring("metrics bind address")))
	})

	It("should load a config file", func() {
		file := filepath.Join(GinkgoT().TempDir(), "deltajoin.yaml")
		Expect(os.WriteFile(file, []byte("workers: 2\n"), 0o600)).To(Succeed())

		c, err := config.Load(file)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Workers).To(Equal(2))

		_, err = config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("should render as YAML", func() {
		Expect(config.Default().String()).To(ContainSubstring("workers: 1"))
	})

	It("should reject out of range log levels", func() {
		_, err := config.Parse([]byte("logging:\n  level: 200\n"))
		Expect(err).To(MatchError(ContainSubstring("log level")))
	})
})

var _ = Describe("Logging", func() {
	var (
		opts zap.Options
		fs   *flag.FlagSet
	)

	BeforeEach(func() {
		opts = zap.Options{}
		fs = flag.NewFlagSet("test", flag.ContinueOnError)
		opts.BindFlags(fs)
	})

	It("should set the zap verbosity and encoder from the config", func() {
		Expect(fs.Parse(nil)).To(Succeed())
		config.Logging{Level: 4, Development: true}.ApplyTo(&opts, fs)

		Expect(opts.Development).To(BeTrue())
		Expect(opts.Level.Enabled(zapcore.Level(-4))).To(BeTrue())
		Expect(opts.Level.Enabled(zapcore.Level(-5))).To(BeFalse())
	})

	It("should log only lifecycle information at level zero", func() {
		config.Default().Logging.ApplyTo(&opts, nil)

		Expect(opts.Development).To(BeTrue())
		Expect(opts.Level.Enabled(zapcore.InfoLevel)).To(BeTrue())
		Expect(opts.Level.Enabled(zapcore.DebugLevel)).To(BeFalse())
	})

	It("should let command line flags win", func() {
		Expect(fs.Parse([]string{"--zap-log-level=debug", "--zap-devel=false"})).To(Succeed())
		config.Logging{Level: 0, Development: true}.ApplyTo(&opts, fs)

		Expect(opts.Development).To(BeFalse())
		Expect(opts.Level.Enabled(zapcore.DebugLevel)).To(BeTrue())
	})
})
