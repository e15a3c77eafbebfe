package kubeutil

import (
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// file written by the downward API in every pod.
const serviceAccountNamespace = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// KubeconfigPath finds a kubeconfig file.
//
// # It searches kubeconfig from
//
// - `~/.kube/config`
//
// - environmental variable `KUBECONFIG`
//
// - the file found first from the searchPath
//
// Later ones take priority. When nothing is found, it returns "".
func KubeconfigPath(searchPath ...string) string {
	kubeconfig := ""
	isFile := func(p string) bool {
		s, err := os.Stat(p)
		return err == nil && !s.IsDir()
	}

	if home := homedir.HomeDir(); home != "" {
		if p := filepath.Join(home, ".kube", "config"); isFile(p) {
			kubeconfig = p
		}
	}
	if k := os.Getenv("KUBECONFIG"); k != "" && isFile(k) {
		kubeconfig = k
	}
	for _, sp := range searchPath {
		if sp != "" && isFile(sp) {
			kubeconfig = sp
			break
		}
	}
	return kubeconfig
}

// Connect builds a client for the cluster.
//
// The kubeconfig is chosen with KubeconfigPath(searchPath...).
// When no kubeconfig is found, it tries in-cluster config.
func Connect(searchPath ...string) (*rest.Config, *kubernetes.Clientset, error) {
	var config *rest.Config
	var err error
	if kubeconfig := KubeconfigPath(searchPath...); kubeconfig == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, err
	}
	return config, clientset, nil
}

// Namespace detects the namespace where this process should work.
//
// The order is: the service account namespace file (in cluster), `$NAMESPACE`, and `fallback`.
func Namespace(fallback string) string {
	return namespaceFrom(serviceAccountNamespace, fallback)
}

func namespaceFrom(path string, fallback string) string {
	if b, err := os.ReadFile(path); err == nil {
		if ns := strings.TrimSpace(string(b)); ns != "" {
			return ns
		}
	}
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}
	return fallback
}
