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

package mtwin

import (
	gocontext "context"
	"fmt"

	"github.com/jwzl/beehive/pkg/core"
	"github.com/jwzl/beehive/pkg/core/context"
	"github.com/spf13/viper"
	"k8s.io/klog"

	"github.com/jwzl/edgeTwin/common"
	"github.com/jwzl/edgeTwin/mtwin/pkg/config"
	"github.com/jwzl/edgeTwin/mtwin/pkg/mapper"
	"github.com/jwzl/edgeTwin/mtwin/pkg/service"
)

type MTwinModule struct {
	context    *context.Context
	mapper     *mapper.Mapper
	controller *Controller
}

// Register this module for the twin described by m.
func Register(m *mapper.Mapper) {
	mtm := &MTwinModule{mapper: m}
	core.Register(mtm)
}

//Name
func (mtm *MTwinModule) Name() string {
	return common.TwinModuleName
}

//Group
func (mtm *MTwinModule) Group() string {
	return common.TwinModuleName
}

//Start this module.
func (mtm *MTwinModule) Start(c *context.Context) {
	klog.Infof("Start the module!")
	mtm.context = c

	conf, err := config.GetModuleConfig()
	if err != nil {
		klog.Errorf("Failed to get module config: %v", err)
		return
	}
	svc, err := NewTwinService(conf, mtm.mapper)
	if err != nil {
		klog.Errorf("Failed to create twin service: %v", err)
		return
	}

	mtm.controller = NewController(c, svc, conf.Notify)
	if err := mtm.controller.Start(gocontext.Background()); err != nil {
		klog.Errorf("Failed to start twin service: %v", err)
	}
}

//Cleanup
func (mtm *MTwinModule) Cleanup() {
	if mtm.controller != nil {
		mtm.controller.Stop()
	}
	if mtm.context != nil {
		mtm.context.Cleanup(mtm.Name())
	}
}

// NewTwinService wires the module client and, in development mode, the
// local twin source selected by conf.
func NewTwinService(conf *config.ModuleConfig, m *mapper.Mapper) (*service.TwinService, error) {
	cli, err := config.NewModuleClient(conf)
	if err != nil {
		return nil, err
	}

	var opts []service.Option
	if conf.Development() {
		src, err := LocalSource(conf.LocalFile, conf.LocalSection)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithLocalSource(src))
	}
	return service.NewTwinService(cli, m, opts...), nil
}

// LocalSource reads section of a local configuration file.
func LocalSource(file, section string) (*mapper.ViperSource, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read local twin %s: %w", file, err)
	}
	if section != "" && !v.IsSet(section) {
		klog.Warningf("local twin %s has no section %s", file, section)
	}
	return mapper.NewViperSource(v, section), nil
}
