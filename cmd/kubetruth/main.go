/*
Copyright 2021 The Kubernetes Authors.

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
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/mikolajroszak/kubetruth/api/v1alpha1"
	"github.com/mikolajroszak/kubetruth/internal/gateway"
	"github.com/mikolajroszak/kubetruth/internal/parameter"
	"github.com/mikolajroszak/kubetruth/internal/pollloop"
	"github.com/mikolajroszak/kubetruth/internal/reconcile"
	"github.com/mikolajroszak/kubetruth/internal/template"
)

var scheme = runtime.NewScheme()

func init() {
	klog.InitFlags(nil)

	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(corev1.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

var (
	kubeconfig     string
	namespace      string
	pollInterval   time.Duration
	dryRun         bool
	once           bool
	healthAddr     string
	fixturePath    string
)

func bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig file; defaults to in-cluster config.")
	fs.StringVar(&namespace, "namespace", "kubetruth", "Namespace holding ProjectMapping CRDs and rendered resources.")
	fs.DurationVar(&pollInterval, "poll-interval", 5*time.Minute, "Interval between reconcile passes when not woken early by a watch event.")
	fs.BoolVar(&dryRun, "dry-run", false, "Render and log manifests without applying them to the cluster.")
	fs.BoolVar(&once, "once", false, "Run a single reconcile pass and exit, instead of polling forever.")
	fs.StringVar(&healthAddr, "health-addr", ":8081", "Address the /healthz liveness endpoint listens on.")
	fs.StringVar(&fixturePath, "parameter-fixture", "", "Path to a YAML fixture of projects/parameters. The production parameter.Source (e.g. a CloudTruth client) is out of this module's scope; this flag is the wiring point it replaces.")
}

func main() {
	pflagSet := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	bindFlags(pflagSet)
	pflagSet.AddGoFlagSet(flag.CommandLine)

	if err := pflagSet.Parse(os.Args[1:]); err != nil {
		klog.Exitf("parsing flags: %v", err)
	}

	if fixturePath == "" {
		klog.Exit("--parameter-fixture is required: no parameter.Source is wired without it")
	}

	cfg, err := restConfig(kubeconfig)
	if err != nil {
		klog.Exitf("loading kube config: %v", err)
	}

	gw, err := gateway.New(cfg, scheme, namespace, dryRun)
	if err != nil {
		klog.Exitf("building gateway: %v", err)
	}

	source, err := parameter.LoadFixture(fixturePath)
	if err != nil {
		klog.Exitf("loading parameter fixture: %v", err)
	}

	engine := reconcile.New(gw, source, template.NewTextRenderer())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if once {
		if err := engine.Apply(ctx); err != nil {
			klog.Exitf("reconcile pass failed: %v", err)
		}

		return
	}

	go serveHealthz(healthAddr)

	pollloop.WithPolling(ctx, gw, pollInterval, engine.Apply)
}

// restConfig loads an in-cluster config unless kubeconfigPath names a file,
// mirroring the teacher's preference for ctrl.GetConfigOrDie's precedence
// without pulling in the full controller-runtime manager stack this
// module doesn't need.
func restConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	if home, homeErr := os.UserHomeDir(); homeErr == nil {
		if cfg, fileErr := clientcmd.BuildConfigFromFlags("", home+"/.kube/config"); fileErr == nil {
			return cfg, nil
		}
	}

	return nil, fmt.Errorf("no in-cluster config and no usable kubeconfig: %w", err)
}

// serveHealthz serves the /healthz liveness endpoint. It answers 200 "ok"
// whenever the process can serve HTTP; it does not track reconcile ticks,
// so a stalled poll loop does not fail the probe.
func serveHealthz(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.Errorf("healthz server exited: %v", err)
	}
}
