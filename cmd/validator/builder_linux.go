package main

import (
	"github.com/codetask/validator/cmd/validator/config"
	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/sandbox/linuxcontainer"
)

func newEnvBuilder(conf *config.Config) (sandbox.EnvBuilder, error) {
	return linuxcontainer.NewBuilder(linuxcontainer.Config{
		TmpFsParam:         conf.TmpFsParam,
		NetShare:           conf.NetShare,
		MountConf:          conf.MountConf,
		SeccompConf:        conf.SeccompConf,
		CgroupPrefix:       conf.CgroupPrefix,
		ContainerCredStart: conf.ContainerCredStart,
		Logger:             logger,
	})
}
