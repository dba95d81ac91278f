// Package cluster discovers the workloads an analysis run covers and
// renders their live manifests for the patch generator.
package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"k8s.io/klog/v2"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// Client wraps the Kubernetes clientsets used for discovery.
type Client struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
	clusterID     string
}

// New connects using the in-cluster config when present, falling back
// to the local kubeconfig.
func New(clusterID string) (*Client, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		var kubeconfig string
		if env := os.Getenv("KUBECONFIG"); env != "" {
			kubeconfig = env
		} else if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}

		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return &Client{
		clientset:     clientset,
		metricsClient: metricsClient,
		clusterID:     clusterID,
	}, nil
}

// NewWithClients builds a Client over existing clientsets, for tests.
func NewWithClients(clientset kubernetes.Interface, metricsClient metricsv.Interface, clusterID string) *Client {
	return &Client{clientset: clientset, metricsClient: metricsClient, clusterID: clusterID}
}

func (c *Client) Clientset() kubernetes.Interface   { return c.clientset }
func (c *Client) MetricsClient() metricsv.Interface { return c.metricsClient }

// DiscoveredWorkload pairs a workload identity with its live manifest,
// reduced to the fields the patch generator reads.
type DiscoveredWorkload struct {
	Workload models.Workload
	Manifest []byte
}

// ListWorkloads returns the analyzable workloads in the namespace, or
// across all namespaces when namespace is empty. Deployments,
// StatefulSets, DaemonSets, and CronJobs are covered; bare pods are not.
func (c *Client) ListWorkloads(ctx context.Context, namespace string) ([]DiscoveredWorkload, error) {
	namespaces := []string{namespace}
	if namespace == "" {
		nsList, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list namespaces: %w", err)
		}
		namespaces = namespaces[:0]
		for _, ns := range nsList.Items {
			namespaces = append(namespaces, ns.Name)
		}
		klog.Infof("discovering workloads across %d namespaces", len(namespaces))
	}

	var out []DiscoveredWorkload
	for _, ns := range namespaces {
		workloads, err := c.listNamespace(ctx, ns)
		if err != nil {
			klog.Warningf("skipping namespace %s: %v", ns, err)
			continue
		}
		out = append(out, workloads...)
	}

	return out, nil
}

func (c *Client) listNamespace(ctx context.Context, namespace string) ([]DiscoveredWorkload, error) {
	var out []DiscoveredWorkload

	deployments, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	for _, d := range deployments.Items {
		replicas := int32(1)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		dw, err := c.discovered("Deployment", d.Name, namespace, replicas, d.Spec.Template.Spec.Containers, "spec.template")
		if err != nil {
			return nil, err
		}
		out = append(out, dw)
	}

	statefulSets, err := c.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list statefulsets: %w", err)
	}
	for _, s := range statefulSets.Items {
		replicas := int32(1)
		if s.Spec.Replicas != nil {
			replicas = *s.Spec.Replicas
		}
		dw, err := c.discovered("StatefulSet", s.Name, namespace, replicas, s.Spec.Template.Spec.Containers, "spec.template")
		if err != nil {
			return nil, err
		}
		out = append(out, dw)
	}

	daemonSets, err := c.clientset.AppsV1().DaemonSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list daemonsets: %w", err)
	}
	for _, d := range daemonSets.Items {
		dw, err := c.discovered("DaemonSet", d.Name, namespace, d.Status.DesiredNumberScheduled, d.Spec.Template.Spec.Containers, "spec.template")
		if err != nil {
			return nil, err
		}
		out = append(out, dw)
	}

	cronJobs, err := c.clientset.BatchV1().CronJobs(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list cronjobs: %w", err)
	}
	for _, cj := range cronJobs.Items {
		dw, err := c.discovered("CronJob", cj.Name, namespace, 1, cj.Spec.JobTemplate.Spec.Template.Spec.Containers, "spec.jobTemplate")
		if err != nil {
			return nil, err
		}
		out = append(out, dw)
	}

	return out, nil
}
