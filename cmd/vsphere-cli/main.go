// Command vsphere-cli runs vSphere operations from the shell.
//
// Credentials can be provided via:
//   - -pass flag (least secure, visible in process list)
//   - VSPHERE_PASSWORD environment variable (recommended)
//   - stdin prompt (if neither flag nor env var is set)
//
// Usage:
//
//	vsphere-cli -host <vcenter> -user <username> <command> [key=value ...]
//
// Examples:
//
//	export VSPHERE_PASSWORD='secret'
//	vsphere-cli -host vc01 -user admin list type=VirtualMachine
//	vsphere-cli -host vc01 -user admin poweron vm=test_vm1
//	vsphere-cli -host vc01 -user admin create-snapshot vm=test_vm1 name=before-upgrade
//	vsphere-cli -host vc01 -user admin help
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	intlog "github.com/smnsjas/go-vsphere/internal/log"
	"github.com/smnsjas/go-vsphere/vsphere"
)

// command maps a CLI verb to a client operation. Args arrive as key=value
// pairs; required keys are validated before any network call.
type command struct {
	usage    string
	help     string
	required []string
	run      func(ctx context.Context, c *vsphere.Client, args map[string]string) error
}

var commands = map[string]command{
	"about": {
		usage: "about",
		help:  "Show server product information",
		run: func(ctx context.Context, c *vsphere.Client, _ map[string]string) error {
			info, err := c.About(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Name:        %s\n", info.FullName)
			fmt.Printf("Vendor:      %s\n", info.Vendor)
			fmt.Printf("Version:     %s (build %s)\n", info.Version, info.Build)
			fmt.Printf("API:         %s %s\n", info.APIType, info.APIVersion)
			return nil
		},
	},
	"list": {
		usage:    "list type=<ManagedObjectType>",
		help:     "List inventory objects of a type (VirtualMachine, HostSystem, Datastore, ...)",
		required: []string{"type"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			objects, err := c.List(ctx, args["type"])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(objects))
			for name := range objects {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-40s %s\n", name, objects[name])
			}
			return nil
		},
	},
	"get-property": {
		usage:    "get-property type=<Type> name=<name> prop=<property.path>",
		help:     "Print one property of a named object",
		required: []string{"type", "name", "prop"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			val, err := c.GetProperty(ctx, args["type"], args["name"], args["prop"])
			if err != nil {
				return err
			}
			fmt.Printf("%v\n", val)
			return nil
		},
	},
	"powerstate": {
		usage:    "powerstate vm=<name>",
		help:     "Print the VM power state",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			state, err := c.PowerState(ctx, args["vm"])
			if err != nil {
				return err
			}
			fmt.Println(state)
			return nil
		},
	},
	"poweron": {
		usage:    "poweron vm=<name>",
		help:     "Power a VM on",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.PowerOnVM(ctx, args["vm"])
		},
	},
	"poweroff": {
		usage:    "poweroff vm=<name>",
		help:     "Power a VM off (hard)",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.PowerOffVM(ctx, args["vm"])
		},
	},
	"reset": {
		usage:    "reset vm=<name>",
		help:     "Reset a VM (hard)",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.ResetVM(ctx, args["vm"])
		},
	},
	"suspend": {
		usage:    "suspend vm=<name>",
		help:     "Suspend a VM",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.SuspendVM(ctx, args["vm"])
		},
	},
	"shutdown": {
		usage:    "shutdown vm=<name>",
		help:     "Ask the guest OS to shut down (needs VMware Tools)",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.ShutdownVM(ctx, args["vm"])
		},
	},
	"reboot": {
		usage:    "reboot vm=<name>",
		help:     "Ask the guest OS to reboot (needs VMware Tools)",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.RebootVM(ctx, args["vm"])
		},
	},
	"create-snapshot": {
		usage:    "create-snapshot vm=<name> name=<snapshot> [desc=<text>] [memory=true] [quiesce=true]",
		help:     "Take a VM snapshot",
		required: []string{"vm", "name"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.CreateSnapshot(ctx, args["vm"], args["name"], vsphere.SnapshotOptions{
				Description: args["desc"],
				Memory:      args["memory"] == "true",
				Quiesce:     args["quiesce"] == "true",
			})
		},
	},
	"list-snapshots": {
		usage:    "list-snapshots vm=<name>",
		help:     "List a VM's snapshots",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			snaps, err := c.ListSnapshots(ctx, args["vm"])
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Printf("%-30s %-25s %s\n", s.Name, s.Created, s.Description)
			}
			return nil
		},
	},
	"revert-snapshot": {
		usage:    "revert-snapshot vm=<name>",
		help:     "Revert a VM to its current snapshot",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.RevertToCurrentSnapshot(ctx, args["vm"])
		},
	},
	"remove-snapshot": {
		usage:    "remove-snapshot vm=<name> name=<snapshot> [children=true]",
		help:     "Remove a named snapshot",
		required: []string{"vm", "name"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.RemoveSnapshot(ctx, args["vm"], args["name"], args["children"] == "true")
		},
	},
	"reconfigure": {
		usage:    "reconfigure vm=<name> [cpus=<n>] [memory=<MB>]",
		help:     "Change VM CPU count and/or memory",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			cpus, _ := strconv.Atoi(args["cpus"])
			mem, _ := strconv.ParseInt(args["memory"], 10, 64)
			return c.ReconfigureVM(ctx, args["vm"], vsphere.ReconfigSpec{
				NumCPUs:  cpus,
				MemoryMB: mem,
			})
		},
	},
	"add-disk": {
		usage:    "add-disk vm=<name> size=<MB> [thin=true] [path=<[ds] vm/disk.vmdk>]",
		help:     "Add a virtual disk to a VM",
		required: []string{"vm", "size"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			size, err := strconv.ParseInt(args["size"], 10, 64)
			if err != nil {
				return fmt.Errorf("size must be a number of MB: %w", err)
			}
			return c.AddDisk(ctx, args["vm"], vsphere.DiskOptions{
				SizeMB: size,
				Thin:   args["thin"] == "true",
				Path:   args["path"],
			})
		},
	},
	"remove-disk": {
		usage:    "remove-disk vm=<name> label=<Hard disk N>",
		help:     "Remove a virtual disk and destroy its backing file",
		required: []string{"vm", "label"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.RemoveDisk(ctx, args["vm"], args["label"])
		},
	},
	"insert-cdrom": {
		usage:    "insert-cdrom vm=<name> iso=<[ds] path/image.iso>",
		help:     "Connect a VM's CD-ROM drive to a datastore ISO",
		required: []string{"vm", "iso"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.InsertCdrom(ctx, args["vm"], args["iso"])
		},
	},
	"mount-tools": {
		usage:    "mount-tools vm=<name>",
		help:     "Mount the VMware Tools installer image",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.MountToolsInstaller(ctx, args["vm"])
		},
	},
	"umount-tools": {
		usage:    "umount-tools vm=<name>",
		help:     "Unmount the VMware Tools installer image",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.UnmountToolsInstaller(ctx, args["vm"])
		},
	},
	"find-files": {
		usage:    "find-files datastore=<name> pattern=<glob>",
		help:     "Search a datastore recursively for files",
		required: []string{"datastore", "pattern"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			files, err := c.FindFiles(ctx, args["datastore"], args["pattern"])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f.Path)
			}
			return nil
		},
	},
	"ls-datastore": {
		usage:    "ls-datastore datastore=<name> [folder=<path>]",
		help:     "List one datastore folder without recursing",
		required: []string{"datastore"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			files, err := c.ListDatastorePath(ctx, args["datastore"], args["folder"])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f.Path)
			}
			return nil
		},
	},
	"run-in-guest": {
		usage:    "run-in-guest vm=<name> guestuser=<user> guestpass=<pass> program=<path> [args=<arguments>]",
		help:     "Start a program inside the guest OS (needs VMware Tools)",
		required: []string{"vm", "guestuser", "guestpass", "program"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			pid, err := c.RunInGuest(ctx, args["vm"], vsphere.GuestAuth{
				Username: args["guestuser"],
				Password: args["guestpass"],
			}, args["program"], args["args"])
			if err != nil {
				return err
			}
			fmt.Printf("pid %s\n", pid)
			return nil
		},
	},
	"register": {
		usage:    "register datacenter=<name> host=<name> path=<[ds] vm/vm.vmx> [template=true]",
		help:     "Register an existing VM into the inventory",
		required: []string{"datacenter", "host", "path"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.RegisterVM(ctx, args["datacenter"], args["host"], args["path"], args["template"] == "true")
		},
	},
	"unregister": {
		usage:    "unregister vm=<name>",
		help:     "Remove a VM from the inventory without deleting files",
		required: []string{"vm"},
		run: func(ctx context.Context, c *vsphere.Client, args map[string]string) error {
			return c.UnregisterVM(ctx, args["vm"])
		},
	},
}

func main() {
	host := flag.String("host", os.Getenv("VSPHERE_HOST"), "vCenter/ESXi hostname (or VSPHERE_HOST)")
	user := flag.String("user", os.Getenv("VSPHERE_USER"), "Username (or VSPHERE_USER)")
	password := flag.String("pass", "", "Password (use VSPHERE_PASSWORD env var instead)")
	port := flag.Int("port", 443, "HTTPS port")
	insecure := flag.Bool("insecure", false, "Skip TLS certificate verification")
	timeout := flag.Duration("timeout", 120*time.Second, "Per-request timeout")
	noCache := flag.Bool("no-cache", false, "Disable the name-to-reference cache")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (empty = no logging)")
	logFile := flag.String("logfile", "", "Log to this file (rotated at 10MB) instead of stderr")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 || args[0] == "help" {
		printHelp(args)
		if len(args) == 0 {
			os.Exit(1)
		}
		return
	}

	verb := args[0]
	cmd, ok := commands[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q (see 'help')\n", verb)
		os.Exit(1)
	}

	kv, err := parseArgs(args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, req := range cmd.required {
		if kv[req] == "" {
			fmt.Fprintf(os.Stderr, "Error: missing %s=...\nusage: %s\n", req, cmd.usage)
			os.Exit(1)
		}
	}

	if *host == "" {
		fmt.Fprintln(os.Stderr, "Error: -host is required (or VSPHERE_HOST)")
		os.Exit(1)
	}
	if *user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required (or VSPHERE_USER)")
		os.Exit(1)
	}
	pass := getPassword(*password)
	if pass == "" {
		fmt.Fprintln(os.Stderr, "Error: password is required (use -pass, VSPHERE_PASSWORD, or stdin)")
		os.Exit(1)
	}

	logger, closeLog, err := buildLogger(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg := vsphere.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.Username = *user
	cfg.Password = pass
	cfg.InsecureSkipVerify = *insecure
	cfg.Timeout = *timeout
	cfg.DisableCache = *noCache
	cfg.Logger = logger

	client, err := vsphere.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	defer client.Close(ctx)

	if err := cmd.run(ctx, client, kv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		client.Close(ctx)
		os.Exit(1)
	}
}

// parseArgs splits "key=value" arguments into a map.
func parseArgs(args []string) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		kv[key] = value
	}
	return kv, nil
}

// getPassword resolves the password from: flag > env var > stdin prompt.
func getPassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("VSPHERE_PASSWORD"); env != "" {
		return env
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return ""
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(pw)
}

// buildLogger wires slog with credential redaction, optionally writing to
// a rotated file.
func buildLogger(level, file string) (*slog.Logger, func(), error) {
	if level == "" {
		return nil, func() {}, nil
	}

	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}

	out := os.Stderr
	closeFn := func() {}
	if file != "" {
		rf, err := intlog.NewRotatingFile(file, 10*1024*1024, 3)
		if err != nil {
			return nil, nil, err
		}
		handler := intlog.NewRedactingHandler(slog.NewTextHandler(rf, &slog.HandlerOptions{Level: slogLevel}))
		return slog.New(handler), func() { _ = rf.Close() }, nil
	}

	handler := intlog.NewRedactingHandler(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel}))
	return slog.New(handler), closeFn, nil
}

func printHelp(args []string) {
	if len(args) > 1 {
		if cmd, ok := commands[args[1]]; ok {
			fmt.Printf("%s\n  %s\n", cmd.usage, cmd.help)
			return
		}
	}

	fmt.Println("vsphere-cli -host <vcenter> -user <username> <command> [key=value ...]")
	fmt.Println()
	fmt.Println("Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-18s %s\n", name, commands[name].help)
	}
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
