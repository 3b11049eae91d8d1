package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig  string
	flagInput   string
	flagAPIBase string
	flagHelp    bool
	flagVersion bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "strawberry.toml", "Configuration file")
	flag.StringVarP(&flagInput, "input", "i", "", "Video source passed to ffmpeg (file, device, or URL)")
	flag.StringVarP(&flagAPIBase, "api-base", "", "https://chat.example.com/api/v9", "Chat API base URL")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Client-side media streamer for voice and video channels

Usage: strawberry [OPTION]...

Configuration:
  -c, --config=FILE    Configuration file (default: strawberry.toml)

Video source:
  -i, --input=SOURCE   Video source passed to ffmpeg (default: none)

Network:
      --api-base=URL   Chat API base URL (default: https://chat.example.com/api/v9)

Miscellaneous:
  -h, --help           Prints this help message and exits
  -v, --version        Prints version information and exits`

// help prints the banner and usage information.
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)

	//      _                       _
	//  ___| |_ _ __ __ ___      _| |__   ___ _ __ _ __ _   _
	// / __| __| '__/ _` \ \ /\ / / '_ \ / _ \ '__| '__| | | |
	// \__ \ |_| | | (_| |\ V  V /| |_) |  __/ |  | |  | |_| |
	// |___/\__|_|  \__,_| \_/\_/ |_.__/ \___|_|  |_|   \__, |
	//                                                  |___/

	r.Println(`      _                       _                         `)
	y.Println(`  ___| |_ _ __ __ ___      _| |__   ___ _ __ _ __ _   _ `)
	r.Println(` / __| __| '__/ _` + "`" + ` \ \ /\ / / '_ \ / _ \ '__| '__| | | |`)
	y.Println(` \__ \ |_| | | (_| |\ V  V /| |_) |  __/ |  | |  | |_| |`)
	r.Println(` |___/\__|_|  \__,_| \_/\_/ |_.__/ \___|_|  |_|   \__, |`)
	y.Println(`                                                  |___/ `)

	fmt.Println(helpString)
}
