/*
Copyright 2024.

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

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	operatorsv1alpha1 "github.com/operator-framework/api/pkg/operators/v1alpha1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/apptrail-sh/releasecheck/internal/buildinfo"
)

const (
	exitError = 1
	exitDrift = 2
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")

	errDriftDetected = errors.New("release version drift detected")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(operatorsv1alpha1.AddToScheme(scheme))
}

func main() {
	ctx := ctrl.SetupSignalHandler()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, errDriftDetected) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitDrift)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
}

func newRootCommand() *cobra.Command {
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)

	root := &cobra.Command{
		Use:           "releasecheck",
		Short:         "Release pipeline checks for Kubernetes operators",
		Long:          "Cross-check installed operator versions against workload release annotations and resolve git branches to commit SHAs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
			cmd.SetContext(ctrl.LoggerInto(cmd.Context(), ctrl.Log.WithName("releasecheck")))
		},
	}
	// Exposes the zap flags and controller-runtime's --kubeconfig
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(newCheckCommand(), newResolveSHACommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the releasecheck version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Version())
		},
	}
}
