// Package doctor checks that the host can run previews: a Node runtime, the
// package managers, a writable projects directory, the database and free
// preview ports.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/harshul/octo-preview/internal/analyzer"
	"github.com/harshul/octo-preview/internal/config"
	"github.com/harshul/octo-preview/internal/ports"
	"github.com/harshul/octo-preview/internal/provisioner"
	"github.com/harshul/octo-preview/internal/secrets"
	"github.com/harshul/octo-preview/internal/store"
	"github.com/harshul/octo-preview/internal/thermal"
)

// Level grades a check
type Level string

const (
	OK   Level = "ok"
	Warn Level = "warn"
	Fail Level = "fail"
)

// Check is the outcome of a single probe
type Check struct {
	Name   string
	Level  Level
	Detail string
	// Hint tells the user how to fix a failed or warned check
	Hint string
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	Checks  []Check
	Healthy bool
}

// Issues returns the checks that did not pass
func (d Diagnosis) Issues() []Check {
	var out []Check
	for _, c := range d.Checks {
		if c.Level != OK {
			out = append(out, c)
		}
	}
	return out
}

func (d *Diagnosis) add(c Check) {
	d.Checks = append(d.Checks, c)
	if c.Level == Fail {
		d.Healthy = false
	}
}

// Doctor runs the checks. The probe fields default to the real host and are
// replaced in tests.
type Doctor struct {
	cfg config.Config

	nodeVersion  func() (string, error)
	checkManager func(provisioner.PackageManager) provisioner.CheckResult
	freePorts    func(ports.Range) int
	openStore    func(path string) error
	hardware     func() thermal.HardwareInfo
}

// New creates a Doctor for cfg
func New(cfg config.Config) *Doctor {
	return &Doctor{
		cfg:          cfg,
		nodeVersion:  nodeVersion,
		checkManager: provisioner.CheckManager,
		freePorts:    ports.CountAvailable,
		openStore:    openStore,
		hardware:     thermal.DetectHardware,
	}
}

func nodeVersion() (string, error) {
	if _, err := exec.LookPath("node"); err != nil {
		return "", err
	}
	out, err := exec.Command("node", "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func openStore(path string) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	return s.Close()
}

// Diagnose checks the host
func (d *Doctor) Diagnose() Diagnosis {
	diagnosis := Diagnosis{Healthy: true}

	diagnosis.add(d.checkNode())
	for _, m := range provisioner.Managers {
		diagnosis.add(d.checkPackageManager(m))
	}
	diagnosis.add(checkProjectsDir(d.cfg.ProjectsDir))
	diagnosis.add(d.checkDatabase())
	diagnosis.add(d.checkPorts())
	diagnosis.add(d.checkHardware())

	return diagnosis
}

func (d *Doctor) checkNode() Check {
	version, err := d.nodeVersion()
	if err != nil {
		return Check{
			Name:   "Node.js",
			Level:  Fail,
			Detail: "node was not found on PATH",
			Hint:   "Install Node.js from https://nodejs.org",
		}
	}
	return Check{Name: "Node.js", Level: OK, Detail: version}
}

// npm ships with Node and is required; the others are only needed by
// projects that ask for them.
func (d *Doctor) checkPackageManager(m provisioner.PackageManager) Check {
	name := provisioner.GetManagerName(m)
	result := d.checkManager(m)
	if result.IsAvailable {
		return Check{Name: name, Level: OK, Detail: result.Version}
	}

	level := Warn
	if m == provisioner.NPM {
		level = Fail
	}
	return Check{Name: name, Level: level, Detail: "not installed", Hint: result.InstallHint}
}

func checkProjectsDir(dir string) Check {
	c := Check{Name: "Projects directory", Detail: dir}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.Level, c.Detail = Fail, err.Error()
		return c
	}
	f, err := os.CreateTemp(dir, ".octo-doctor-*")
	if err != nil {
		c.Level, c.Detail = Fail, fmt.Sprintf("%s is not writable: %v", dir, err)
		return c
	}
	f.Close()
	os.Remove(f.Name())
	c.Level = OK
	return c
}

func (d *Doctor) checkDatabase() Check {
	if err := d.openStore(d.cfg.Database); err != nil {
		return Check{Name: "Database", Level: Fail, Detail: err.Error()}
	}
	return Check{Name: "Database", Level: OK, Detail: d.cfg.Database}
}

func (d *Doctor) checkPorts() Check {
	r := d.cfg.PortRange()
	free := d.freePorts(r)
	c := Check{Name: "Preview ports", Detail: fmt.Sprintf("%d of %d free in %s", free, r.Size(), r)}
	switch {
	case free == 0:
		c.Level = Fail
		c.Hint = "Stop whatever is bound to the range or set preview.port_start/port_end"
	case free < r.Size()/4:
		c.Level = Warn
	default:
		c.Level = OK
	}
	return c
}

func (d *Doctor) checkHardware() Check {
	hw := d.hardware()
	slots := thermal.InstallSlots(hw, d.cfg.Preview.InstallSlots)
	return Check{
		Name:   "Host",
		Level:  OK,
		Detail: fmt.Sprintf("%s; %d concurrent installs", thermal.FormatHardwareInfo(hw), slots),
	}
}

// DiagnoseProject checks a single project root
func DiagnoseProject(dir string) Diagnosis {
	diagnosis := Diagnosis{Healthy: true}

	info, err := analyzer.Analyze(dir)
	if err != nil {
		diagnosis.add(Check{Name: "Project", Level: Fail, Detail: err.Error()})
		return diagnosis
	}
	if !info.HasManifest {
		diagnosis.add(Check{Name: "Project", Level: Warn, Detail: "no package.json", Hint: "A Next.js app will be scaffolded on first start"})
		return diagnosis
	}
	diagnosis.add(Check{Name: "Project", Level: OK, Detail: info.Name})

	if !info.IsNext {
		diagnosis.add(Check{Name: "Next.js", Level: Warn, Detail: "next is not a dependency"})
	}
	if info.DevScript == "" {
		diagnosis.add(Check{Name: "Dev script", Level: Fail, Detail: "package.json has no dev script", Hint: `Add "dev": "next dev"`})
	} else if info.ScriptPort != 0 {
		diagnosis.add(Check{
			Name:   "Dev script",
			Level:  Warn,
			Detail: fmt.Sprintf("dev script pins port %d", info.ScriptPort),
			Hint:   "Remove the port flag so the assigned preview port is used",
		})
	}

	detection := provisioner.DetectPackageManager(info.Root)
	name := provisioner.GetManagerName(detection.Manager)
	if info.HasDependencies {
		diagnosis.add(Check{Name: "Dependencies", Level: OK, Detail: "installed with " + name})
	} else {
		diagnosis.add(Check{
			Name:   "Dependencies",
			Level:  Warn,
			Detail: "node_modules is missing",
			Hint:   strings.Join(provisioner.InstallCommand(detection.Manager), " "),
		})
	}

	diagnosis.add(checkEnv(info.Root))
	return diagnosis
}

// checkEnv warns about credentials the code reads but no env file defines.
// The dev server still starts; the pages using them fail at runtime.
func checkEnv(root string) Check {
	status, err := secrets.CheckEnvStatus(root)
	if err != nil {
		return Check{Name: "Environment", Level: Warn, Detail: err.Error()}
	}
	missing := status.RequiredMissing()
	if len(missing) == 0 {
		return Check{
			Name:   "Environment",
			Level:  OK,
			Detail: fmt.Sprintf("%d of %d referenced variables defined", len(status.Defined), len(status.Referenced)),
		}
	}

	names := make([]string, len(missing))
	for i, v := range missing {
		names[i] = fmt.Sprintf("%s (%s:%d)", v.Name, v.File, v.Line)
	}
	return Check{
		Name:   "Environment",
		Level:  Warn,
		Detail: "undefined: " + strings.Join(names, ", "),
		Hint:   "Add them to .env.local",
	}
}
