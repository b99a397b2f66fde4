/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"io"

	"github.com/jwzl/beehive/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/mtwin"
	"github.com/jwzl/edgeTwin/mtwin/pkg/client/dummy"
	"github.com/jwzl/edgeTwin/mtwin/pkg/config"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

/*
* new app command
 */
func NewAppCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "edgeTwin",
		Long: `edgeTwin keeps the module twin of an edge application in sync with
		the cloud. Desired properties pushed by the cloud are applied to a typed
		twin, the twin is reported back, and every accepted twin is forwarded to
		the other edge modules. In development mode the twin is read from a local
		configuration file instead of the cloud.`,
		Run: func(cmd *cobra.Command, args []string) {
			runApp()
		},
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newApplyCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the twin module",
		Run: func(cmd *cobra.Command, args []string) {
			runApp()
		},
	}
}

func runApp() {
	klog.Infof("###########  Start the edgeTwin %s ! ###########", Version)
	registerModules()
	// start all modules
	core.Run()
}

// register all module into beehive.
func registerModules() {
	mtwin.Register(NewAppTwinMapper())
}

func newExportCommand() *cobra.Command {
	var file, section, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the twin reported for a local configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := mtwin.LocalSource(file, section)
			if err != nil {
				return err
			}

			m := NewAppTwinMapper()
			twin := &AppTwin{}
			if err := m.ApplySource(src, twin); err != nil {
				return err
			}
			reported, err := m.Export(twin)
			if err != nil {
				return err
			}
			return writeBag(cmd.OutOrStdout(), reported, output)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "conf/twin.yaml", "local configuration file")
	cmd.Flags().StringVarP(&section, "section", "s", config.DefaultSection, "section holding the twin values")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format, json or yaml")
	return cmd
}

func newApplyCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Apply a desired properties file to a fresh twin and print the reported properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desired, err := dummy.LoadBag(args[0])
			if err != nil {
				return err
			}

			m := NewAppTwinMapper()
			twin := &AppTwin{}
			if err := m.ApplyBag(desired, twin); err != nil {
				return err
			}
			reported, err := m.Export(twin)
			if err != nil {
				return err
			}
			return writeBag(cmd.OutOrStdout(), reported, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format, json or yaml")
	return cmd
}

func writeBag(w io.Writer, bag *propbag.Bag, format string) error {
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = bag.MarshalJSON()
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(bag)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
