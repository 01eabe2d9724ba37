package stack

import (
	"github.com/spf13/viper"

	"github.com/papercomputeco/weave/api/client"
)

// RemoteClient returns a client for the server at client.api_target acting
// for owner.
func RemoteClient(v *viper.Viper, owner string) *client.Client {
	return client.New(v.GetString("client.api_target"), owner, nil)
}
