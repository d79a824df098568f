package config

import (
	_ "github.com/any-hub/coverhub/internal/kindmodule/avatar"
	_ "github.com/any-hub/coverhub/internal/kindmodule/bucket"
	_ "github.com/any-hub/coverhub/internal/kindmodule/poster"
)
